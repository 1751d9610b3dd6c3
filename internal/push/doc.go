// Package push sends stored device configurations to an external backend.
//
// Each device is sent in one POST with a bearer token. The body is either
// nested, {"device": {...}, "registers": [...]}, or a flat object holding
// only the device's connection parameters. A run over several devices
// attempts each exactly once and reports how many succeeded; failures are
// not retried.
package push
