// Package storage manages materialized artifacts in the output directory.
//
// Artifacts are written to a temporary file in the same directory and then
// renamed into place, so a reader sees either the previous file or the
// complete new one. Concurrent saves of the same collection are serialized.
//
// Usage:
//
//	manager, err := storage.NewManager("./exports")
//	if err != nil {
//	    return err
//	}
//
//	path, err := manager.Save("customers", func(w io.Writer) error {
//	    return writeRows(w)
//	})
package storage
