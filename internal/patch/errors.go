package patch

import (
	"errors"

	"github.com/nevindra/codexcore"
)

var errEmptyPatch = errors.New(codexcore.PatchRejectedEmpty)

// errOutsideWorkspace is returned by confine when a target escapes the
// workspace's writable roots. Its text is the exact rejection message the
// tool returns to the model.
var errOutsideWorkspace = errors.New(codexcore.PatchRejectedOutsideWorkspace)
