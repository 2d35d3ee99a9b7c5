// Package http is the public face of the netwire HTTP/1.1 client. It wraps
// the connection-owning client of the internal package with a base URL,
// default headers and context-aware calls that return the whole reply.
//
// Basic Usage:
//
//	client, err := http.NewClient("http://api.example.com:8080",
//	    http.WithTimeout(5*time.Second),
//	    http.WithHeader("Accept", "application/json"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	req := http.NewRequest("GET", "/users").
//	    WithQueryParam("limit", "10")
//
//	resp, err := client.Do(context.Background(), req)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("Status: %d\n", resp.StatusCode)
//	fmt.Printf("TTFB: %v\n", resp.Timing.TimeToFirstByte)
//
// Requests are sent over one persistent connection which is reopened when
// the server closes it. Only plain http URLs are supported.
//
// Thread Safety:
//
// Client is safe for concurrent use; calls are serialized on its single
// connection. Use one Client per goroutine for parallel requests.
package http
