package auth

import (
	"fmt"
	"io"
)

// ShowLoginGuide explains where the token is read from
func ShowLoginGuide(w io.Writer, host string) {
	fmt.Fprintf(w, "Storing an API token for %s\n\n", host)
	fmt.Fprintln(w, "The token is sent as 'Authorization: Bearer <token>' on every page request.")
	fmt.Fprintln(w, "It is saved in the system keychain, or an encrypted file when no keychain is available.")
	fmt.Fprintln(w, "Tokens are resolved in this order:")
	fmt.Fprintln(w, "  1. upstream.token in the config file or "+TokenEnvVar)
	fmt.Fprintln(w, "  2. the keychain or encrypted file entry written by 'custsync auth login'")
	fmt.Fprintln(w)
}
