// Package store provides persistent storage for the development backend
// using SQLite.
//
// # Data Models
//
//   - Conversation: a chat.Conversation plus the handle of its owner
//   - Message: persisted as the raw chat.Message the backend saw, in
//     arrival order (an autoincrement sequence column), so a history load
//     returns actions and observations as separate entries
//
// # Thread Safety
//
// SQLiteStore is safe for concurrent use; database/sql pools connections and
// the database runs in WAL mode.
//
// # Usage
//
//	s, err := store.NewSQLiteStore("/var/lib/chatline/backend.db")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	err = s.CreateConversation(ctx, store.Conversation{Owner: "alice", Conversation: conv})
//	msgs, err := s.Messages(ctx, conv.ID, 0)
package store
