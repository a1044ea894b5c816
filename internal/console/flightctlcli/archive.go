package flightctlcli

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/h2non/filetype"
)

const (
	binaryName = "flightctl"

	// maxBinarySize bounds what is accepted from a downloaded archive.
	maxBinarySize = 512 << 20

	// headerSize is the number of leading bytes filetype needs to match.
	headerSize = 261
)

var executableKinds = []string{"elf", "macho", "exe"}

// extractBinary copies the flightctl entry of the tar.gz stream r into dest
// with mode 0755. The entry may sit in a subdirectory of the archive.
func extractBinary(r io.Reader, dest string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return ErrArchive.MsgErr("not a gzip stream", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return ErrArchive.Msg("archive has no " + binaryName + " entry")
		}
		if err != nil {
			return ErrArchive.MsgErr("failed to read archive", err)
		}
		if hdr.Typeflag != tar.TypeReg || path.Base(hdr.Name) != binaryName {
			continue
		}
		if hdr.Size > maxBinarySize {
			return ErrArchive.Msg(fmt.Sprintf("%s entry too large: %d bytes", binaryName, hdr.Size))
		}
		return installFile(io.LimitReader(tr, maxBinarySize), dest)
	}
}

// installFile writes r to a temp file next to dest, validates it as an
// executable and renames it into place.
func installFile(r io.Reader, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return ErrCLINotAvailable.MsgErr("failed to create install directory", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+binaryName+"-*")
	if err != nil {
		return ErrCLINotAvailable.MsgErr("failed to create temp file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return ErrArchive.MsgErr("failed to extract "+binaryName, err)
	}
	if err := tmp.Close(); err != nil {
		return ErrCLINotAvailable.MsgErr("failed to write "+binaryName, err)
	}
	if err := isBinaryExecutable(tmpName); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0755); err != nil {
		return ErrCLINotAvailable.MsgErr("failed to set permissions", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return ErrCLINotAvailable.MsgErr("failed to install "+binaryName, err)
	}
	return nil
}

// isBinaryExecutable checks the file header for a native executable format.
func isBinaryExecutable(name string) error {
	f, err := os.Open(name)
	if err != nil {
		return ErrNotExecutable.MsgErr("failed to open file", err)
	}
	defer f.Close()

	head := make([]byte, headerSize)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrNotExecutable.MsgErr("failed to read file header", err)
	}
	kind, err := filetype.Match(head[:n])
	if err != nil {
		return ErrNotExecutable.MsgErr("failed to detect file type", err)
	}
	for _, k := range executableKinds {
		if kind.Extension == k {
			return nil
		}
	}
	return ErrNotExecutable.Msg(fmt.Sprintf("%s has unsupported type %q", binaryName, kind.Extension))
}
