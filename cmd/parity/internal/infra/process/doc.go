// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package process provides the subprocess boundary and the per-project lock.

# Overview

  - Manager: every external command (container runtime, lsof, mkcert, the
    Supabase CLI) goes through this interface so tests can script output.
  - Lock: flock(2)-based advisory lock that keeps two parity invocations
    from reconciling the same project directory at once.

# Manager

	pm := process.NewDefaultManager()
	out, err := pm.Run(ctx, "docker", "compose", "version", "--short")

For tests, use MockManager:

	mock := &process.MockManager{
	    RunFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
	        return []byte("2.29.1\n"), nil
	    },
	}

# Lock

	lock := process.NewLock(process.LockConfig{Dir: ".parity", Name: "parity"})
	if err := lock.Acquire(); err != nil {
	    return err
	}
	defer lock.Release()

# Thread Safety

Manager implementations are safe for concurrent use. Lock is not.
*/
package process
