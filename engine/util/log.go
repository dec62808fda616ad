package util

import (
	"fmt"
	"strings"
)

var GLOBAL_LOG_LEVEL = LogLevelInfo
var GLOBAL_LOG_CATEGORIES = LogVoxel | LogCache | LogJobs | LogSystem | LogIO

type LogLevel int

const (
	LogLevelError LogLevel = 1 << iota
	LogLevelWarning
	LogLevelInfo
	LogLevelDebug
)

// ParseLogLevel maps config names onto levels; unknown names fall back to info.
func ParseLogLevel(name string) LogLevel {
	switch name {
	case "error":
		return LogLevelError
	case "warning", "warn":
		return LogLevelWarning
	case "debug":
		return LogLevelDebug
	}
	return LogLevelInfo
}

type LogCategory int

const (
	LogVoxel LogCategory = 1 << iota
	LogMesh
	LogCache
	LogLock
	LogJobs
	LogIO
	LogSystem

	LogAll = LogVoxel | LogMesh | LogCache | LogLock | LogJobs | LogIO | LogSystem
)

var categoryPrefix = map[LogCategory]string{
	LogVoxel:  "[Voxel]",
	LogMesh:   "[Mesh]",
	LogCache:  "[Cache]",
	LogLock:   "[Lock]",
	LogJobs:   "[Jobs]",
	LogIO:     "[IO]",
	LogSystem: "[System]",
}

func log(cat LogCategory, lvl LogLevel, txt string) {
	if lvl > GLOBAL_LOG_LEVEL {
		return
	}
	if GLOBAL_LOG_CATEGORIES&cat == 0 {
		return
	}
	println(categoryPrefix[cat] + " " + txt)
}

func LogVoxelInfo(format string, args ...any) {
	log(LogVoxel, LogLevelInfo, fmt.Sprintf(format, args...))
}

func LogVoxelDebug(format string, args ...any) {
	log(LogVoxel, LogLevelDebug, fmt.Sprintf(format, args...))
}

func LogVoxelError(format string, args ...any) {
	log(LogVoxel, LogLevelError, fmt.Sprintf(format, args...))
}

func LogMeshDebug(format string, args ...any) {
	log(LogMesh, LogLevelDebug, fmt.Sprintf(format, args...))
}

func LogMeshError(format string, args ...any) {
	log(LogMesh, LogLevelError, fmt.Sprintf(format, args...))
}

func LogCacheInfo(format string, args ...any) {
	log(LogCache, LogLevelInfo, fmt.Sprintf(format, args...))
}

func LogCacheWarning(format string, args ...any) {
	log(LogCache, LogLevelWarning, fmt.Sprintf(format, args...))
}

func LogLockDebug(format string, args ...any) {
	log(LogLock, LogLevelDebug, fmt.Sprintf(format, args...))
}

func LogLockWarning(format string, args ...any) {
	log(LogLock, LogLevelWarning, fmt.Sprintf(format, args...))
}

func LogJobsDebug(format string, args ...any) {
	log(LogJobs, LogLevelDebug, fmt.Sprintf(format, args...))
}

func LogJobsError(format string, args ...any) {
	log(LogJobs, LogLevelError, fmt.Sprintf(format, args...))
}

func LogIOInfo(format string, args ...any) {
	log(LogIO, LogLevelInfo, fmt.Sprintf(format, args...))
}

func LogIOError(format string, args ...any) {
	log(LogIO, LogLevelError, fmt.Sprintf(format, args...))
}

func LogSystemInfo(format string, args ...any) {
	log(LogSystem, LogLevelInfo, fmt.Sprintf(format, args...))
}

func LogSystemError(format string, args ...any) {
	log(LogSystem, LogLevelError, fmt.Sprintf(format, args...))
}

func LogJobsInfo(format string, args ...any) {
	log(LogJobs, LogLevelInfo, fmt.Sprintf(format, args...))
}

func LogIODebug(format string, args ...any) {
	log(LogIO, LogLevelDebug, fmt.Sprintf(format, args...))
}

// ParseLogCategories turns names like "voxel" or "all" into a category mask.
func ParseLogCategories(names []string) (LogCategory, error) {
	var mask LogCategory
	for _, name := range names {
		found := false
		if name == "all" {
			mask |= LogAll
			continue
		}
		for cat, prefix := range categoryPrefix {
			if strings.EqualFold(prefix, "["+name+"]") {
				mask |= cat
				found = true
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown log category %q", name)
		}
	}
	return mask, nil
}
