// Package uimodel parses an Android `uiautomator dump` hierarchy into a
// tree of UI elements and locates a previously-seen element again across
// redraws using the strongest signal available.
//
// Elements carry a downward-propagated clickable flag (a child is
// clickable if any ancestor is, even if the child itself is not) while
// retaining ClickableSelf for exact matching. The Finder tries eight
// matching strategies in decreasing order of confidence, falling back to
// bounds proximity only when gated by a text/class similarity check.
package uimodel
