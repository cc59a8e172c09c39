// Package archive stores scenario run reports.
//
// Reports are JSON documents addressed by a flat name such as
// "mount-once-<uuid>.json". Three backends implement Store:
//
//   - DiskStore writes one file per report with an atomic rename
//   - S3Store writes one object per report under a key prefix
//   - MemoryStore keeps reports in memory for tests and short-lived servers
//
// Open selects a backend from Config:
//
//	store, err := archive.Open(archive.Config{Backend: "disk", Dir: ".resync/reports"})
//	if err != nil {
//	    return err
//	}
//	err = archive.PutJSON(ctx, store, report.Key(), report)
package archive
