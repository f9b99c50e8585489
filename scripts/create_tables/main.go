// Creates the archiver keyspace and messages table. The archiver also does
// this on startup; the script exists for provisioning Scylla ahead of time.
package main

import (
	"flag"
	"log"
	"strings"

	"github.com/mahaj/chat-core/pkg/history"
)

func main() {
	hosts := flag.String("hosts", "localhost:9042", "comma-separated scylla hosts")
	keyspace := flag.String("keyspace", "chat", "keyspace name")
	flag.Parse()

	session, err := history.NewScyllaSession(strings.Split(*hosts, ","), "system")
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer session.Close()

	err = session.Query(`CREATE KEYSPACE IF NOT EXISTS ` + *keyspace +
		` WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`).Exec()
	if err != nil {
		log.Fatalf("Failed to create keyspace: %v", err)
	}

	err = session.Query(`CREATE TABLE IF NOT EXISTS ` + *keyspace + `.messages (
		room text,
		id bigint,
		sender_id text,
		sender text,
		content text,
		timestamp timestamp,
		PRIMARY KEY (room, id)
	) WITH CLUSTERING ORDER BY (id DESC)`).Exec()
	if err != nil {
		log.Fatalf("Failed to create messages table: %v", err)
	}

	log.Println("Schema ready")
}
