package engine

import (
	"fmt"
	"time"

	"github.com/forumgate/gatekeeper/engage/activitystore"
)

func cooldownMessage(author string, last time.Time, days int) string {
	return fmt.Sprintf("Hi u/%s, your post has been removed because you have already shared music here in the last %d days "+
		"(your last accepted post was on %s). You can post again starting %s. Thank you for understanding!",
		author, days, last.Format(activitystore.DateLayout), CooldownEnds(last, days).Format(activitystore.DateLayout))
}

func shortDescriptionMessage(author string, minWords, gotWords int) string {
	return fmt.Sprintf("Hi u/%s, your post has been removed because its description is too short (%d words). "+
		"Please tell the community about the music you are sharing, in at least %d words, and then try posting again. Thank you for understanding!",
		author, gotWords, minWords)
}

func lowReputationMessage(author string) string {
	return fmt.Sprintf("Hi u/%s, your post has been removed because your account does not yet have enough karma to share music here. "+
		"Please take part in the community for a while and then try posting again. Thank you for understanding!",
		author)
}

func lowEngagementMessage(author string, v Verdict, c Config) string {
	return fmt.Sprintf("Hi u/%s, your post has been removed because you have not met the required engagement criteria. "+
		"Please engage with other members' music by making meaningful comments (at least %d words each) on at least %d posts, and then try posting again. "+
		"So far %d of your comments have counted. Thank you for understanding!",
		author, c.MinCommentWords, c.MinQualifyingComments, v.QualifyingComments)
}

const commentFeedbackMessage = "Thank you for your thoughtful comment! It counts towards your eligibility to share your own music here."
