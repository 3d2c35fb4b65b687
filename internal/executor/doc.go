// Package executor interprets a store.Flow's step list against one
// device: pre-analysis (skippable steps, dynamic timeout), start-of-flow
// preparation (wake, unlock, smart app launch), the step execution loop
// (state validation, retry, recovery, navigation-depth tracking, learn
// mode, repair mode), and the capture_sensors pipeline that reads sensor
// values and hands them to internal/mqttbridge for publication.
//
// Mode flags change the loop's behavior without changing the step
// vocabulary: Learn records newly observed screens into the navigation
// graph, Strict turns soft navigation failures into step failures, Repair
// updates drifted sensor bounds in place, and Force re-runs steps the
// pre-analysis pass would otherwise skip.
package executor
