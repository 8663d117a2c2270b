package main

import (
	"flag"
	"log"
	"net/http"
	"time"

	"tonstation_bot/internal/mockapi"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	farmMinutes := flag.Int("farm-minutes", 2, "farm duration in minutes")
	flag.Parse()

	srv := mockapi.New(mockapi.Options{
		FarmDuration: time.Duration(*farmMinutes) * time.Minute,
		Quests:       mockapi.DefaultQuests(),
	})

	server := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("mock tonstation listening on %s", *addr)
	log.Fatal(server.ListenAndServe())
}
