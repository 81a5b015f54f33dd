package runtime

import (
	"github.com/wippyai/bfbridge"
	"github.com/wippyai/bfbridge/errors"
)

// translate converts a native error descriptor into an *errors.Error and
// frees it. A nil descriptor means success.
func translate(desc bfbridge.ErrorDescriptor, phase errors.Phase, kind errors.Kind, op string) error {
	if desc == nil {
		return nil
	}
	defer desc.Free()
	return errors.Native(phase, kind, op, desc.Description())
}
