// Package config resolves, validates, reads and writes checkup's .checkuprc.
//
// # Overview
//
// A checkup config is a JSON document:
//
//	{
//	  "$schema": "https://raw.githubusercontent.com/checkupjs/checkup/master/packages/core/src/schemas/config-schema.json",
//	  "excludePaths": ["**/node_modules"],
//	  "plugins": ["checkup-plugin-javascript"],
//	  "tasks": {
//	    "javascript/eslint-disables": ["on", {"threshold": 5}],
//	    "meta/lines-of-code": "off"
//	  }
//	}
//
// # Components
//
// GetConfigPath: Picks the config to read. No explicit path means the
// .checkuprc in the working directory. An http(s) URL is downloaded to a
// temporary file first.
//
// ReadConfig: Parses the file, validates it against the built-in CUE schema
// and normalizes plugin names. A missing file is the default config.
//
// WriteConfig: Creates a .checkuprc from defaults plus overrides. It refuses
// to overwrite an existing file.
//
// SchemaRegistry: Compiled CUE schemas. The "config" schema is built in.
//
// Watch: Re-reads the config on change using fsnotify.
//
// # Errors
//
// Failures surface as *engine.CheckupError:
//
//   - InvalidJSON: the file is not JSON; the message carries the parser
//     error and the byte position
//   - InvalidConfig: the document does not match the schema
//   - ConfigFileExists: WriteConfig found an existing file
//   - ConfigNotFound: an explicit local path does not exist
//   - RemoteConfigFetch: downloading a remote config failed
//
// # Usage Example
//
//	path, err := config.GetConfigPath(ctx, flags.Config, flags.Cwd)
//	if err != nil {
//	    return err
//	}
//	cfg, err := config.ReadConfig(path)
//	if err != nil {
//	    return err
//	}
package config
