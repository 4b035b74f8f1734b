package value_object

import (
	"errors"
	"strings"

	"ikedadada/go-onehop/internal/domain/apperror"
)

// ParseTargetURL splits "scheme://host/path" into host and path. The scheme
// itself is ignored; only its separator is required. A missing path yields "/".
func ParseTargetURL(url string) (host, path string, err error) {
	_, rest, ok := strings.Cut(url, "://")
	if !ok {
		return "", "", apperror.New(apperror.InvalidURL, "parse url", url,
			errors.New("missing scheme (http or https)"))
	}
	host, path, ok = strings.Cut(rest, "/")
	if ok {
		path = "/" + path
	} else {
		path = "/"
	}
	if host == "" {
		return "", "", apperror.New(apperror.InvalidURL, "parse url", url, errors.New("missing host"))
	}
	return host, path, nil
}
