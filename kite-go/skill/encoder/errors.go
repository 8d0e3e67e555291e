package encoder

import "fmt"

// ConfigMismatchError reports an encoder that does not have the structure a
// configuration expects. It is fatal at construction time.
type ConfigMismatchError struct {
	What   string
	Detail string
}

func (e *ConfigMismatchError) Error() string {
	return fmt.Sprintf("encoder configuration mismatch: %s: %s", e.What, e.Detail)
}
