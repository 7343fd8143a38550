package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"wsecho/pkg/transport"
)

// Reads lines from stdin, sends each as a text message and prints the
// reply. Sending the sentinel ends the session.
func main() {
	addr := flag.String("addr", envOr("WSECHO_ADDR", "127.0.0.1:8010"), "server address")
	path := flag.String("path", "/", "request path")
	sentinel := flag.String("sentinel", "close", "message that ends the session")
	timeout := flag.Duration("timeout", 10*time.Second, "dial and handshake timeout")
	flag.Parse()

	u := url.URL{Scheme: "ws", Host: *addr, Path: *path}
	dialer := websocket.Dialer{
		NetDialContext:   transport.TCPDialer{Timeout: *timeout}.DialContext,
		HandshakeTimeout: *timeout,
	}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("dial %s: %v", u.String(), err)
	}
	defer conn.Close()
	log.Printf("connected to %s", u.String())

	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		line := in.Text()
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			log.Fatalf("write: %v", err)
		}
		_, reply, err := conn.ReadMessage()
		if err != nil {
			log.Fatalf("read: %v", err)
		}
		fmt.Println(string(reply))
		if line == *sentinel {
			return
		}
	}
	if err := in.Err(); err != nil {
		log.Fatalf("stdin: %v", err)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
