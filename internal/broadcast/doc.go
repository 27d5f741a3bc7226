// Package broadcast posts unsolicited cat content to every connected guild.
//
// Two jobs run on a robfig/cron scheduler:
//
//   - meme-interval fires every MemeInterval and sends either a static phrase
//     or a meme link (phrase on fetch failure) to each guild's target channel.
//   - meme-daily fires once a day at DailyHour:00 in the configured location
//     and sends a meme embed. A guild whose fetch fails gets nothing.
//
// Target channels are resolved per firing from the gateway's current guild
// list, so guilds joined or left between firings are picked up without any
// bookkeeping. Delivery is best-effort: per-target errors are logged,
// published on the event bus and skipped.
package broadcast
