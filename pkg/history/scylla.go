package history

import (
	"context"
	"time"

	"github.com/gocql/gocql"

	"github.com/mahaj/chat-core/pkg/model"
)

// globalRoom is the partition key for broadcast history. Direct messages are
// never written here.
const globalRoom = "global"

// NewScyllaSession connects to a ScyllaDB cluster with the retry policy used
// across the services.
func NewScyllaSession(hosts []string, keyspace string) (*gocql.Session, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        1 * time.Second,
	}
	return cluster.CreateSession()
}

// ScyllaStore backs history with the archiver's messages table so a
// deployment can swap durable storage in for the in-memory buffer. It is not
// capacity-bounded; retention belongs to the table's TTL policy.
type ScyllaStore struct {
	session *gocql.Session
}

func NewScyllaStore(session *gocql.Session) *ScyllaStore {
	return &ScyllaStore{session: session}
}

func (s *ScyllaStore) Append(ctx context.Context, msg *model.Message) error {
	return s.session.Query(
		`INSERT INTO messages (room, id, sender_id, sender, content, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		globalRoom, msg.ID, msg.SenderID, msg.Sender, msg.Content, msg.Timestamp,
	).WithContext(ctx).Exec()
}

func (s *ScyllaStore) Page(ctx context.Context, offset, limit int) (Page, error) {
	offset, limit = clampWindow(offset, limit)

	var total int
	if err := s.session.Query(
		`SELECT COUNT(*) FROM messages WHERE room = ?`, globalRoom,
	).WithContext(ctx).Scan(&total); err != nil {
		return Page{}, err
	}

	if offset >= total {
		return Page{Messages: []model.Message{}, Total: total}, nil
	}

	// Rows come back newest-first (clustering order id DESC); skip the
	// offset, keep up to limit, then reverse into page order.
	iter := s.session.Query(
		`SELECT id, sender_id, sender, content, timestamp FROM messages WHERE room = ? LIMIT ?`,
		globalRoom, offset+limit,
	).WithContext(ctx).Iter()

	var newestFirst []model.Message
	var msg model.Message
	row := 0
	for iter.Scan(&msg.ID, &msg.SenderID, &msg.Sender, &msg.Content, &msg.Timestamp) {
		if row >= offset {
			newestFirst = append(newestFirst, msg)
		}
		row++
	}
	if err := iter.Close(); err != nil {
		return Page{}, err
	}

	items := make([]model.Message, len(newestFirst))
	for i, m := range newestFirst {
		items[len(items)-1-i] = m
	}

	return Page{
		Messages: items,
		Total:    total,
		HasMore:  total-offset-limit > 0,
	}, nil
}
