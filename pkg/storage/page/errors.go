package page

import "github.com/pkg/errors"

// directoryIntegrityError builds the distinguished "corruption"
// error VerifyIntegrity surfaces when the directory's invariants are
// violated.
func directoryIntegrityError(format string, args ...interface{}) error {
	return errors.Errorf("directory integrity violation: "+format, args...)
}
