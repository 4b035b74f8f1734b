// Package main is the onehop client: it fetches one URL through a single
// relay.
//
// Usage:
//
//	onehop-client connect --relay-ip 127.0.0.1 --relay-port 9001 \
//	    --fingerprint <40 hex> --url http://example.com/ --port 80
package main

func main() {
	Execute()
}
