// Package client provides a Go SDK for the status server's HTTP API.
//
// It is a thin hand-written wrapper over net/http, providing typed methods
// for every operation the status server exposes, plus a WebSocket client
// for real-time task event streaming.
//
// # Basic Usage
//
//	client, err := client.New("http://localhost:8080")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create a task
//	task, err := client.SubmitTask(ctx, client.CreateTaskRequest{
//	    ID:         "batch-1",
//	    InputFile:  "in.jsonl",
//	    OutputFile: "out.vec",
//	})
//
// # WebSocket Events
//
//	err := client.ConnectWebSocket(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.CloseWebSocket()
//
//	for event := range client.Events() {
//	    fmt.Printf("Event: %s\n", event.Type)
//	}
//
// # Configuration
//
// The client supports functional options for configuration:
//
//	client, err := client.New("http://localhost:8080",
//	    client.WithAPIKey("your-api-key"),
//	    client.WithTimeout(30 * time.Second),
//	)
package client
