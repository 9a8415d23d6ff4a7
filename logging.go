package nffs

import "log"

func defaultLogger() *log.Logger {
	return log.Default()
}
