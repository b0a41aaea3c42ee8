package storage

import (
	"fmt"

	"github.com/cuemby/silo/pkg/siloerr"
)

func wrapSchemaDropFailed(container string, err error) error {
	return fmt.Errorf("storage: drop container %q: %w: %v", container, siloerr.ErrSchemaDropFailed, err)
}
