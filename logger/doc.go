// Package logger provides structured logging for the Operate engine
// using zerolog.
//
// It supports JSON and console output, log level configuration, and
// component-scoped loggers with structured fields.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.GetGlobalLogger().WithComponent("executor")
//	log.Info("run finished", logger.Fields(logger.FieldRunID, id, logger.FieldRecords, n))
package logger
