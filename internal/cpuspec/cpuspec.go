// Package cpuspec derives a sensible inference thread count from the CPU
// model. On hybrid architectures only the performance cores are worth
// giving to the classifier; efficiency cores slow the whole batch down.
package cpuspec

import (
	"regexp"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// CPUSpec contains information about CPU specifications
type CPUSpec struct {
	BrandName        string
	PerformanceCores int
}

// intelPCores maps hybrid Intel Core model numbers to performance core counts.
var intelPCores = map[string]int{
	// 12th gen
	"12900": 8, "12700": 8, "12600": 6, "12400": 6, "12100": 4,
	// 13th gen
	"13900": 8, "13700": 8, "13600": 6, "13500": 6, "13400": 6, "13100": 4,
	// 14th gen
	"14900": 8, "14700": 8, "14600": 6, "14400": 6, "14100": 4,
}

// ultraPCores maps Intel Core Ultra series/model pairs to performance core counts.
var ultraPCores = map[string]int{
	"9/285": 8,
	"7/265": 8, "7/255": 8,
	"5/235": 6, "5/225": 4,
}

// applePCores maps Apple Silicon chip names to performance core counts.
var applePCores = map[string]int{
	"m1": 4, "m1 pro": 8, "m1 max": 8, "m1 ultra": 16,
	"m2": 4, "m2 pro": 8, "m2 max": 12, "m2 ultra": 24,
	"m3": 4, "m3 pro": 8, "m3 max": 12, "m3 ultra": 24,
	"m4": 6, "m4 pro": 8, "m4 max": 12,
}

var (
	intelCoreRegex = regexp.MustCompile(`intel.*(?:core.*i[3579]-(\d{5})|core.*ultra\s+([579])\s+(?:processor\s+)?(\d{3}))`)
	appleRegex     = regexp.MustCompile(`(?i)apple\s+(m[1234]\s*(?:pro|max|ultra)?)\s*`)
)

// GetCPUSpec returns CPU specifications including the number of performance cores
func GetCPUSpec() CPUSpec {
	brandName := cpuid.CPU.BrandName
	return CPUSpec{
		BrandName:        brandName,
		PerformanceCores: determinePerformanceCores(brandName),
	}
}

// GetOptimalThreadCount returns the recommended number of threads for analysis.
func (c CPUSpec) GetOptimalThreadCount() int {
	// NumCPU reflects what is actually available, which matters in VMs
	// and containers with CPU limits.
	availableCPUs := runtime.NumCPU()

	if c.PerformanceCores > 0 {
		if c.PerformanceCores > availableCPUs {
			return availableCPUs
		}
		return c.PerformanceCores
	}

	// Homogeneous cores, Raspberry Pi included: use all of them.
	if cores := cpuid.CPU.LogicalCores; cores > 0 {
		if cores > availableCPUs {
			return availableCPUs
		}
		return cores
	}
	return availableCPUs
}

// determinePerformanceCores maps a CPU brand string to its performance core
// count, returning 0 when the model is not a known hybrid design.
func determinePerformanceCores(brandName string) int {
	brandName = strings.ToLower(brandName)

	if matches := intelCoreRegex.FindStringSubmatch(brandName); len(matches) > 1 {
		if matches[1] != "" {
			return intelPCores[matches[1]]
		}
		if matches[2] != "" {
			return ultraPCores[matches[2]+"/"+matches[3]]
		}
	}

	if matches := appleRegex.FindStringSubmatch(brandName); len(matches) > 1 {
		chip := strings.Join(strings.Fields(strings.ToLower(matches[1])), " ")
		return applePCores[chip]
	}

	return 0
}
