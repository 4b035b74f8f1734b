// Command onehop-relay runs a minimal single-hop exit relay.
//
// It speaks the link handshake, CREATE_FAST circuits and BEGIN/DATA/END
// streams, enough for onehop-client to fetch through it.
package main

func main() {
	Execute()
}
