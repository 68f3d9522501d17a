package telegram

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

// Commands is the menu registered with Telegram. The router also accepts a
// "!" prefix for each of them.
var Commands = []tgbotapi.BotCommand{
	{Command: "end", Description: "End the current conversation"},
	{Command: "question", Description: "Post the next question of the day"},
	{Command: "help", Description: "Show what kodok can do"},
}
