// Package triage turns raw log text into validated, persisted incidents:
// invoker → retry controller → validator → lifecycle manager.
package triage
