package uploads

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	pkgerrors "github.com/megaerp/catalog-image-sync/pkg/errors"
)

// ParseObjectKey derives the product code and gallery position from a storage
// key of the form <prefix>/<code>_<position>.<ext>. Malformed keys are data
// errors; the consumer still routes them through the regular retry path
// because it cannot tell malformed-forever apart from transient breakage.
func ParseObjectKey(key string) (string, int, error) {
	base := path.Base(key)
	stem := strings.TrimSuffix(base, path.Ext(base))

	parts := strings.Split(stem, "_")
	if len(parts) < 2 {
		return "", 0, pkgerrors.New(
			pkgerrors.CodeValidation,
			fmt.Sprintf("object key %q has no position segment", key),
		)
	}

	code := parts[0]
	if code == "" {
		return "", 0, pkgerrors.New(
			pkgerrors.CodeValidation,
			fmt.Sprintf("object key %q has no product code", key),
		)
	}

	position, err := strconv.Atoi(parts[1])
	if err != nil || position < 0 {
		return "", 0, pkgerrors.New(
			pkgerrors.CodeValidation,
			fmt.Sprintf("object key %q has an invalid position %q", key, parts[1]),
		)
	}

	return code, position, nil
}
