package sqlinline

// QStatsRecordOutcome is the explicit aggregate update called in the
// same transaction as the terminal job transition. It replaces the
// database triggers of the original schema so the invariant lives in
// one visible, testable place.
const QStatsRecordOutcome = `--sql bea2dd70-f80c-44ed-be63-224322d8b1c3
insert into stats_daily (day, videos_completed, videos_failed, credits_charged, credits_refunded)
values (current_date, $1::bigint, $2::bigint, $3::bigint, $4::bigint)
on conflict (day) do update set
    videos_completed = stats_daily.videos_completed + excluded.videos_completed,
    videos_failed    = stats_daily.videos_failed + excluded.videos_failed,
    credits_charged  = stats_daily.credits_charged + excluded.credits_charged,
    credits_refunded = stats_daily.credits_refunded + excluded.credits_refunded;
`

const QStatsSummary = `--sql 06976422-34ab-4e6f-8153-2d947da29075
select
    coalesce(sum(videos_completed), 0),
    coalesce(sum(videos_failed), 0),
    coalesce(sum(credits_charged), 0),
    coalesce(sum(credits_refunded), 0),
    (select count(*) from jobs where state not in ('completed', 'failed'))
from stats_daily;
`
