// Package preflight provides readiness checks for the directories,
// server installation, and model files that generation depends on.
//
// These checks run in two contexts:
//   - The CLI "videogen preflight" command runs RunAll and renders every
//     result, pass or fail, so a broken environment is diagnosed in one
//     pass instead of one failed generation at a time.
//   - The CLI "videogen server status" command reuses individual check
//     functions to display environment health next to the server state.
//
// Checks that depend on optional configuration are skipped when that
// configuration is absent.
package preflight
