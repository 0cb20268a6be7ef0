package sqlinline

// QInsertJob creates the pending row for the external submission path.
const QInsertJob = `--sql e0f5356a-6571-4f8b-9522-0fedd0ed9666
insert into jobs (owner_id, price, input_image_ref, input_audio_ref, input_text)
values ($1::uuid, $2::bigint, nullif($3, ''), nullif($4, ''), nullif($5, ''))
returning id, created_at;
`

const QSelectJobStatus = `--sql 80ea2cf8-c284-4fe9-8ee7-a1979eb36150
select id, state, progress, coalesce(error_message, ''), coalesce(artifact_ref, '')
from jobs
where id = $1::uuid;
`

// QLockNextPendingJob picks the oldest pending job together with the
// owner's balance. Must run inside a transaction: skip locked makes the
// row an exclusive claim until the admission decision commits.
const QLockNextPendingJob = `--sql 3709225a-1915-4964-8627-ae81edcbc8c2
with next_job as (
    select id
    from jobs
    where state = 'pending'
    order by created_at asc
    for update skip locked
    limit 1
)
select j.id, j.owner_id, j.price,
       coalesce(j.input_image_ref, ''), coalesce(j.input_audio_ref, ''), coalesce(j.input_text, ''),
       coalesce(a.balance, 0)
from jobs j
join next_job on next_job.id = j.id
left join credit_accounts a on a.owner_id = j.owner_id;
`

const QAdmitJob = `--sql af2c75ac-6af6-40f2-b703-1f5af016eda2
update jobs
set state = 'processing_audio', progress = $2::int, started_at = now(), updated_at = now()
where id = $1::uuid and state = 'pending';
`

// QAdvanceJobState is the compare-and-set transition: the write only
// lands if the state has not moved since the caller read it.
const QAdvanceJobState = `--sql 54b39f63-3c05-4df9-8937-98ed2c05613a
update jobs
set state = $3, progress = $4::int, updated_at = now()
where id = $1::uuid and state = $2;
`

const QUpdateJobProgress = `--sql 3fedc5a2-ea59-4394-be02-88fd228a8e91
update jobs
set progress = $3::int, updated_at = now()
where id = $1::uuid and state = $2;
`

const QSetJobSpeechRef = `--sql d9a7b82c-a369-49e5-9c2c-dfb915df2ebc
update jobs
set speech_ref = $3, updated_at = now()
where id = $1::uuid and state = $2;
`

const QSetJobVideoRef = `--sql 1561b853-8c9e-4279-a357-33b3772464d2
update jobs
set video_ref = $3, updated_at = now()
where id = $1::uuid and state = $2;
`

const QCompleteJob = `--sql 88a6a74f-719d-4ffc-b5dc-e45dc4197ac6
update jobs
set state = 'completed', progress = 100, artifact_ref = $2, charge_id = $3::uuid, updated_at = now()
where id = $1::uuid and state = 'uploading';
`

const QFailJob = `--sql 50c07904-fa36-40cf-ae66-58b5b0a2a686
update jobs
set state = 'failed', error_message = $3, updated_at = now()
where id = $1::uuid and state = $2;
`

const QSelectStaleJobs = `--sql 7a484d77-0c2c-4a9f-aca8-c0543e194058
select id, owner_id
from jobs
where state = $1 and updated_at < now() - ($2::bigint * interval '1 second')
order by updated_at asc;
`

const QSelectExpiredFailedJobs = `--sql 30535a45-ff9f-4740-9551-ba78b6017d49
select id, owner_id, coalesce(speech_ref, ''), coalesce(video_ref, '')
from jobs
where state = 'failed' and purged_at is null
  and updated_at < now() - ($1::bigint * interval '1 day')
order by updated_at asc;
`

const QMarkJobPurged = `--sql d1da68f9-f2c0-4217-8cf4-723b20507b5d
update jobs
set speech_ref = null, video_ref = null, purged_at = now(), updated_at = now()
where id = $1::uuid and state = 'failed' and purged_at is null;
`
