package host

import (
	"runtime"
	"strings"
	"testing"

	"github.com/chazu/symbridge/pkg/bytecode"
)

func TestLanes(t *testing.T) {
	tests := []struct {
		name string
		bits int
		want int
	}{
		{"scalar", 0, 1},
		{"too narrow", 64, 1},
		{"neon", 128, 2},
		{"avx", 256, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Caps{Arch: "amd64", VectorBits: tt.bits}
			for _, d := range []bytecode.Domain{bytecode.Real, bytecode.Complex} {
				if got := c.Lanes(d); got != tt.want {
					t.Errorf("Lanes(%v) = %d, want %d", d, got, tt.want)
				}
			}
			if c.HasSIMD() != (tt.want > 1) {
				t.Errorf("HasSIMD() = %v", c.HasSIMD())
			}
		})
	}
}

func TestWithoutSIMD(t *testing.T) {
	c := Caps{Arch: "amd64", VectorBits: 256, HasAVX: true, HasAVX2: true}
	s := c.WithoutSIMD()
	if s.HasSIMD() || s.HasAVX || s.HasAVX2 {
		t.Errorf("WithoutSIMD() = %+v", s)
	}
	if !c.HasSIMD() {
		t.Error("WithoutSIMD modified the receiver")
	}
	if s.Arch != "amd64" {
		t.Errorf("Arch = %q, want amd64", s.Arch)
	}
}

func TestDetect(t *testing.T) {
	c := Detect()
	if c.Arch != runtime.GOARCH {
		t.Errorf("Arch = %q, want %q", c.Arch, runtime.GOARCH)
	}
	if c.LogicalCores < 1 {
		t.Errorf("LogicalCores = %d", c.LogicalCores)
	}
	if c.ISA() != c.Arch {
		t.Errorf("ISA() = %q, want %q", c.ISA(), c.Arch)
	}
	if Detect() != c {
		t.Error("Detect() is not stable")
	}
}

func TestDetectForeignArch(t *testing.T) {
	c := detect("riscv64")
	if c.HasSIMD() {
		t.Errorf("riscv64 reported SIMD: %v", c)
	}
	if !strings.HasPrefix(c.String(), "riscv64 vector=0 bits features=none") {
		t.Errorf("String() = %q", c.String())
	}
}

func TestFeatures(t *testing.T) {
	c := Caps{HasAVX: true, HasFMA: true}
	got := strings.Join(c.Features(), ",")
	if got != "avx,fma" {
		t.Errorf("Features() = %q, want %q", got, "avx,fma")
	}
}
