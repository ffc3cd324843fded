//go:build amd64 || arm64 || riscv64

package codegen

import "runtime"

func init() {
	Register(NewThreaded(runtime.GOARCH))
}
