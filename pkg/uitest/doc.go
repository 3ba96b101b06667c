// Package uitest provides helpers for testing Bubble Tea models.
//
//	func TestModel(t *testing.T) {
//	    t.Parallel()
//
//	    tm := uitest.NewTestModel(t, NewModel(), uitest.Compact)
//	    uitest.WaitForText(t, tm, "ready")
//
//	    tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
//	    out := uitest.FinalOutput(t, tm, time.Second)
//	}
package uitest
