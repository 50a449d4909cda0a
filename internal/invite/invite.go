// Package invite renders the connection-info message bodies the original
// implementation's invitation.py emailed between peers. spec.md §1 keeps
// SMTP delivery out of scope; this package keeps only the deterministic,
// testable text-formatting half, for a caller to hand to whatever
// delivery mechanism it has.
package invite

import "fmt"

// Request renders the body a would-be transmitter sends a prospective
// receiver: where to connect and which public key to expect.
func Request(localIP string, port int, publicKeyHex string) string {
	return fmt.Sprintf(`Hello, someone would like to send you something!

Please specify a directory you would like to receive the files at and enter the
IP Address and Port given below:

IP: %s
Port: %d
Public Encryption Key: %s

Please send a confirmation back to them with your IP address and then start the
main application.
`, localIP, port, publicKeyHex)
}

// Confirm renders the body a prospective receiver sends back once willing
// to proceed: the IP to whitelist on the transmitter side.
func Confirm(localIP string) string {
	return fmt.Sprintf(`Hello, the recipient is willing to receive your file(s)!

Please add the IP address below to your whitelist and start the main application:

IP: %s
`, localIP)
}
