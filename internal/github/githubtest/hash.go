package githubtest

import (
	"crypto/sha1" //nolint:gosec // git object ids are sha1
	"encoding/hex"
	"fmt"
)

// BlobSHA returns the git blob id of content, as `git hash-object` would.
func BlobSHA(content string) string {
	return objectSHA("blob", content)
}

func objectSHA(kind, body string) string {
	h := sha1.New() //nolint:gosec // git object ids are sha1
	fmt.Fprintf(h, "%s %d\x00", kind, len(body))
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}
