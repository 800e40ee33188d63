package internal

import (
	"io"

	"github.com/corvidworks/stackpr/config"
)

type Gitbase struct {
	Config  *config.Config
	Rootdir string
	Stderr  io.Writer
}
