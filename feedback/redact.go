package feedback

import "github.com/hounfour/gateway/redaction"

// Redact scrubs a string of trajectory output for any secret value it
// might have captured (e.g. an API key echoed into a tool-call argument
// by mistake) using the same primitives C2's credential chain and C1's
// config display use, so the analyzer's output carries no new leak path.
func Redact(text string) string {
	return redaction.String(text)
}
