package logger

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// SubsystemTags is an enum of all the subsystem tags that may request a
// logger through Get. Tags are four characters so that log lines align.
var SubsystemTags = struct {
	CORE,
	MNSV,
	CNFG,
	UTIL string
}{
	CORE: "CORE",
	MNSV: "MNSV",
	CNFG: "CNFG",
	UTIL: "UTIL",
}

// BackendLog is the logging backend used to create all subsystem loggers.
var BackendLog = NewBackend()

// subsystemLoggers maps each subsystem tag to its logger.
var subsystemLoggers = make(map[string]*Logger)

// Get returns the logger of a specific subsystem. An error is returned if the
// tag is not one of SubsystemTags.
func Get(tag string) (*Logger, error) {
	if logger, ok := subsystemLoggers[tag]; ok {
		return logger, nil
	}
	if !isValidTag(tag) {
		return nil, errors.Errorf("log subsystem %s is undefined", tag)
	}
	logger := BackendLog.Logger(tag)
	subsystemLoggers[tag] = logger
	return logger, nil
}

func isValidTag(tag string) bool {
	switch tag {
	case SubsystemTags.CORE, SubsystemTags.MNSV, SubsystemTags.CNFG, SubsystemTags.UTIL:
		return true
	}
	return false
}

// InitLog attaches the given log files to the backend and launches it. The
// errLogFile only receives messages at LevelWarn and above.
func InitLog(logFile, errLogFile string) error {
	err := BackendLog.AddLogFile(logFile, LevelTrace)
	if err != nil {
		return errors.Wrapf(err, "error adding log file %s as log rotator for level %s", logFile, LevelTrace)
	}
	err = BackendLog.AddLogFile(errLogFile, LevelWarn)
	if err != nil {
		return errors.Wrapf(err, "error adding log file %s as log rotator for level %s", errLogFile, LevelWarn)
	}
	return BackendLog.Run()
}

// SetLogLevel sets the logging level for the provided subsystem. Invalid
// subsystems or levels are ignored and reported with the returned bool.
func SetLogLevel(subsystemTag string, logLevel string) bool {
	level, ok := LevelFromString(logLevel)
	if !ok {
		return false
	}
	logger, ok := subsystemLoggers[subsystemTag]
	if !ok {
		return false
	}
	logger.SetLevel(level)
	return true
}

// SetLogLevels sets the logging level for all registered subsystems.
func SetLogLevels(logLevel string) error {
	level, ok := LevelFromString(logLevel)
	if !ok {
		return errors.Errorf("invalid log level %s", logLevel)
	}
	for _, logger := range subsystemLoggers {
		logger.SetLevel(level)
	}
	return nil
}

// SupportedSubsystems returns a sorted slice of the registered subsystems.
func SupportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for tag := range subsystemLoggers {
		subsystems = append(subsystems, tag)
	}
	sort.Strings(subsystems)
	return subsystems
}

// ParseAndSetLogLevels parses the debug level string and sets the levels
// accordingly. The format is either a single level for all subsystems, or a
// comma separated list of subsystem=level pairs.
func ParseAndSetLogLevels(logLevel string) error {
	if !strings.Contains(logLevel, ",") && !strings.Contains(logLevel, "=") {
		return SetLogLevels(logLevel)
	}
	for _, logLevelPair := range strings.Split(logLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			return errors.Errorf("the specified log level contains an invalid subsystem/level pair %s", logLevelPair)
		}
		fields := strings.Split(logLevelPair, "=")
		if len(fields) != 2 {
			return errors.Errorf("the specified log level has an invalid subsystem/level pair %s", logLevelPair)
		}
		if !SetLogLevel(fields[0], fields[1]) {
			return errors.Errorf("the specified subsystem %s or log level %s is invalid", fields[0], fields[1])
		}
	}
	return nil
}
