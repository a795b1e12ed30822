package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           memwatchd API
// @version         1.0
// @description     HTTP API for the memory-safety watchdog: samples, thresholds, model registry and alerts.
//
// @contact.name   memwatchd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
