package reply

import "fmt"

func wrapPosition(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrMalformedPosition}, args...)...)
}
