//go:build !linux

package parquet

import "os"

func adviseSequential(*os.File) {}
