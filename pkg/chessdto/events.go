package chessdto

// Event names published on game-<id> and user-<id> channels.
const (
	EventGameStart    = "gameStart"
	EventMove         = "move"
	EventGameEnd      = "gameEnd"
	EventDrawOffer    = "drawOffer"
	EventDrawDeclined = "drawDeclined"

	EventRegistrationConfirmed = "registration_confirmed"
	EventRegistrationCancelled = "registration_cancelled"
	EventTournamentStarting    = "tournament_starting"
	EventTournamentStarted     = "tournament_started"
	EventRoundAdvanced         = "round_advanced"
	EventMatchScheduled        = "match_scheduled"
	EventTournamentCompleted   = "tournament_completed"
	EventMatchReminder         = "match_reminder"
	EventRoundComplete         = "round_complete"
)
