//go:build !darwin && !linux

package ku

import "errors"

func hostMachine() (string, error) {
	return "", errors.New("uname not available")
}
