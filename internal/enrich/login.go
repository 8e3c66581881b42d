package enrich

import (
	"behavior-risk-service/internal/model"
)

// EnrichLogin compares the session's login context against the user's
// habitual login window. Pure; profile may be nil.
func EnrichLogin(login model.LoginContext, profile *model.UserBehavioralProfile) model.LoginBehavior {
	behavior := model.LoginBehavior{
		Method:       login.Method,
		AttemptCount: login.AttemptCount,
		HourOfDay:    login.TimeOfDayHour,
		DayOfWeek:    login.DayOfWeek,
	}

	if profile == nil || profile.Login.LoginCount == 0 {
		return behavior
	}

	start := profile.Login.TypicalHourStart
	end := profile.Login.TypicalHourEnd
	if start <= end {
		behavior.IsTypicalHour = login.TimeOfDayHour >= start && login.TimeOfDayHour <= end
	} else {
		// Window wraps midnight.
		behavior.IsTypicalHour = login.TimeOfDayHour >= start || login.TimeOfDayHour <= end
	}

	return behavior
}
