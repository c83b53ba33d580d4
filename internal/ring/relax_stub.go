//go:build !amd64 || noasm

package ring

// cpuRelax is a no-op on targets without a spin-hint instruction.
func cpuRelax() {}
