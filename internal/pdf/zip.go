package pdf

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// BuildZip packages the given files into a flat archive at zipPath. Entry
// names are the input base names.
func BuildZip(zipPath string, files []string) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return eris.Wrap(err, "zip: create archive")
	}
	defer out.Close() //nolint:errcheck

	w := zip.NewWriter(out)
	for _, file := range files {
		if err := addZipEntry(w, file); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return eris.Wrap(err, "zip: close archive")
	}
	return out.Close()
}

func addZipEntry(w *zip.Writer, file string) error {
	in, err := os.Open(file)
	if err != nil {
		return eris.Wrapf(err, "zip: open %s", file)
	}
	defer in.Close() //nolint:errcheck

	entry, err := w.Create(filepath.Base(file))
	if err != nil {
		return eris.Wrapf(err, "zip: create entry %s", file)
	}
	if _, err := io.Copy(entry, in); err != nil {
		return eris.Wrapf(err, "zip: write entry %s", file)
	}
	return nil
}
