// Package api is the HTTP client for the chat server's REST endpoints:
// conversation CRUD, history load, feedback, summarization and file upload.
//
// # Endpoints
//
//	GET    /api/conversations                          list summaries
//	POST   /api/conversations                          create {id, title}
//	GET    /api/conversations/{id}                     detail with messages
//	PUT    /api/conversations/{id}                     update {title?, pinned?}
//	DELETE /api/conversations/{id}                     delete
//	POST   /api/conversations/{id}/summarization       derive a title
//	POST   /api/conversations/{id}/files               multipart "files"
//	PUT    /api/conversations/{id}/messages/{idx}/{fb} fb is thumbup or thumbdown
//
// Every request carries the user handle in the X-Chat-User header and, when
// configured, a bearer token. Error responses have the body {"error": msg}
// and are returned as *StatusError; errors.Is maps 404 to ErrNotFound and
// 403 to ErrForbidden.
package api
