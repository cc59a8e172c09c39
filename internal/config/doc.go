// Package config provides configuration parsing for resync.
//
// The configuration is stored in resync.json at the project root. Every
// field has a default, so the file is optional. RESYNC_* environment
// variables override the file.
//
// # Configuration File Structure
//
//	{
//	  "server": {"addr": "localhost:7070"},
//	  "log": {"level": "info", "format": "text"},
//	  "budget": {"maxPasses": 50},
//	  "strictConstants": false,
//	  "metrics": {"namespace": "resync"},
//	  "tracing": {"tracerName": "resync"},
//	  "archive": {
//	    "backend": "s3",
//	    "bucket": "team-reports",
//	    "prefix": "resync/",
//	    "region": "eu-west-1"
//	  },
//	  "scenarios": {"dir": "scenarios"}
//	}
//
// # Environment Overrides
//
//	RESYNC_ADDR, RESYNC_LOG_LEVEL, RESYNC_LOG_FORMAT, RESYNC_MAX_PASSES,
//	RESYNC_STRICT_CONSTANTS, RESYNC_METRICS_NAMESPACE, RESYNC_TRACER_NAME,
//	RESYNC_ARCHIVE_BACKEND, RESYNC_ARCHIVE_DIR, RESYNC_ARCHIVE_BUCKET,
//	RESYNC_ARCHIVE_PREFIX, RESYNC_ARCHIVE_REGION, RESYNC_ARCHIVE_ENDPOINT,
//	RESYNC_SCENARIOS_DIR
//
// # Usage
//
//	cfg, err := config.Resolve(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Addr:", cfg.Server.Addr)
package config
